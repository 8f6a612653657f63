package vocab

// Structural tokens shared by every description and code sequence.
var (
	DescriptionStructure = []string{"[", "]", "contract", "function", "for", ":", ",", "."}
	CodeStructure        = []string{"[", "]", "(", ")", "{", "}", ";", ".", ",", StartToken, EndToken}
)

// VarTypes are the variable types contracts may declare.
var VarTypes = []string{"uint", "int", "double", "float", "address", "bytes32", "boolean"}

// FuncVisibility are the function visibility modifiers.
var FuncVisibility = []string{"public", "private"}

// DescriptionKeywords is the template and expression wording that appears in
// generated descriptions.
var DescriptionKeywords = []string{
	"a", "an", "the", "with", "that", "named", "called", "variable", "variables",
	"of", "type", "takes", "returns", "sets", "to", "and", "is", "if", "then",
	"else", "plus", "minus", "times", "divided", "by", "equals", "greater",
	"less", "than", "not", "value", "increments", "decrements",
	"=", "+", "-", "*", "/", "==", "!=", "<", ">", "<=", ">=",
}

// CodeKeywords is the template and expression syntax that appears in
// generated code.
var CodeKeywords = []string{
	"contract", "function", "returns", "return", "if", "else", "for", "while",
	"memory", "storage", "view", "pure", "mapping", "require", "true", "false",
	"=", "+", "-", "*", "/", "==", "!=", "<", ">", "<=", ">=", "&&", "||", "!",
	"+=", "-=", "++", "--", "=>",
}

// DefaultNames returns the single-letter variable names a-z and A-Z.
func DefaultNames() []string {
	names := make([]string, 0, 52)
	for c := 'a'; c <= 'z'; c++ {
		names = append(names, string(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		names = append(names, string(c))
	}
	return names
}

// Syntax returns the variable types and visibility modifiers together.
func Syntax() []string {
	out := make([]string, 0, len(VarTypes)+len(FuncVisibility))
	out = append(out, VarTypes...)
	return append(out, FuncVisibility...)
}
