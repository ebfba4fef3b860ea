package ports

// TemplateEngine renders a manifest template against an operator-supplied
// configuration before parsing.
type TemplateEngine interface {
	Render(raw []byte, config map[string]interface{}) ([]byte, error)
}
