package judge

import (
	"fmt"
	"strings"

	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"
)

// WrapForTesting wraps user source with a minimal per-language harness that
// invokes the target function with the test case input and prints the
// result. Languages without a harness pass the source through untouched.
func WrapForTesting(userCode, language string, testCase tasks.TestCase, functionSignature string) string {
	switch strings.ToLower(language) {
	case "javascript", "js":
		return wrapJavaScript(userCode, testCase, functionSignature)
	case "python":
		return wrapPython(userCode, testCase, functionSignature)
	case "go":
		return wrapGo(userCode, testCase, functionSignature)
	case "cpp", "c++":
		return wrapCpp(userCode, testCase, functionSignature)
	default:
		return userCode
	}
}

func functionName(signature string) string {
	name, _, _ := strings.Cut(signature, "(")
	return strings.TrimSpace(name)
}

// bareToken reports whether the input is a single unquoted, non-array
// argument that may need string quoting.
func bareToken(input string) bool {
	return !strings.HasPrefix(input, `"`) &&
		!strings.HasPrefix(input, `'`) &&
		!strings.HasPrefix(input, "[") &&
		!strings.Contains(input, ",")
}

func signatureHasAny(signature string, markers ...string) bool {
	for _, marker := range markers {
		if strings.Contains(signature, marker) {
			return true
		}
	}
	return false
}

func wrapJavaScript(userCode string, testCase tasks.TestCase, signature string) string {
	input := testCase.Input
	if bareToken(input) && signatureHasAny(signature, "str", "String") {
		input = `"` + input + `"`
	}

	return fmt.Sprintf("%s\n\n// Test code\nconst result = %s(%s);\nconsole.log(result);", userCode, functionName(signature), input)
}

func wrapPython(userCode string, testCase tasks.TestCase, signature string) string {
	input := testCase.Input
	if bareToken(input) && signatureHasAny(signature, "str", "String") {
		input = `"` + input + `"`
	}

	return fmt.Sprintf("%s\n\n# Test code\nresult = %s(%s)\nprint(result)", userCode, functionName(signature), input)
}

func wrapGo(userCode string, testCase tasks.TestCase, signature string) string {
	input := testCase.Input
	isString := strings.Contains(signature, "string")

	switch {
	case bareToken(input) && isString:
		input = `"` + input + `"`
	case strings.Contains(input, "["):
		// Closing bracket first - the slice literal prefix introduces its
		// own "]".
		input = strings.Replace(input, "]", "}", 1)
		input = strings.Replace(input, "[", "[]int{", 1)
	}

	code := userCode
	if !strings.Contains(code, `"fmt"`) {
		code = strings.Replace(code, "package main\n", "package main\n\nimport \"fmt\"\n", 1)
	}

	return fmt.Sprintf("%s\n\nfunc main() {\n\tresult := %s(%s)\n\tfmt.Println(result)\n}", code, functionName(signature), input)
}

func wrapCpp(userCode string, testCase tasks.TestCase, signature string) string {
	input := testCase.Input
	isString := signatureHasAny(signature, "str", "String", "string")
	isVector := signatureHasAny(signature, "vector", "Vector")

	switch {
	case bareToken(input) && isString:
		input = `"` + input + `"`
	case strings.Contains(input, "["):
		input = strings.ReplaceAll(input, "[", "{")
		input = strings.ReplaceAll(input, "]", "}")
	}

	var includes strings.Builder
	if !strings.Contains(userCode, "#include <iostream>") {
		includes.WriteString("#include <iostream>\n")
	}
	if !strings.Contains(userCode, "#include <vector>") && (strings.Contains(input, "{") || isVector) {
		includes.WriteString("#include <vector>\n")
	}
	if !strings.Contains(userCode, "#include <string>") && isString {
		includes.WriteString("#include <string>\n")
	}

	usingDirective := "\nusing namespace std;"
	if strings.Contains(userCode, "using namespace std;") {
		usingDirective = ""
	}

	isVectorInput := strings.Contains(input, "{")

	output := "std::cout << std::boolalpha << result << std::endl;"
	if isVectorInput {
		output = `for (int i : result) std::cout << i << " "; std::cout << std::endl;`
	}

	var main string
	if isVectorInput && isVector {
		main = fmt.Sprintf(
			"int main() {\n    std::vector<int> arr = %s;\n    auto result = %s(arr);\n    %s\n    return 0;\n}",
			input, functionName(signature), output,
		)
	} else {
		main = fmt.Sprintf(
			"int main() {\n    auto result = %s(%s);\n    %s\n    return 0;\n}",
			functionName(signature), input, output,
		)
	}

	return includes.String() + userCode + usingDirective + "\n\n" + main
}
