package entities

// ValidationRule is a CEL expression that must evaluate to true for a record to be written
// Example: rule label_present = "size(self.label) > 0"
type ValidationRule struct {
	Name       string // Rule name, reported when the rule fails
	Expression string // CEL expression over the "self" map
}
