package block

import "github.com/kubilitics/kubilitics-backend/internal/name"

// TemplateKind is the legacy/index/component axis of §4.5.3's template operation matrix.
type TemplateKind int

const (
	TemplateLegacy TemplateKind = iota
	TemplateIndex
	TemplateComponent
)

// TemplateAction is the get/add/delete axis of §4.5.3's template operation matrix.
type TemplateAction int

const (
	TemplateGet TemplateAction = iota
	TemplateAdd
	TemplateDelete
)

// TemplateOperation narrows the block context when the request targets one of the nine
// template CRUD surfaces (§4.5.3: {legacy,index,component} × {get,add,delete}).
type TemplateOperation struct {
	Kind   TemplateKind
	Action TemplateAction

	// RequestedNames are the template-name patterns named by the request path (get/delete)
	// — empty for add, which instead carries the single name being created.
	RequestedNames []string

	// TemplateName is the single template name for an add operation.
	TemplateName string

	// IndexPatterns is the add operation's "patterns" field (§4.5.3: checked for being a
	// subset of the block's allowed indices before admission).
	IndexPatterns []name.Name

	// Aliases is the add operation's "aliases" field (§4.5.3: every alias must also be a
	// subset of the block's allowed indices, with the literal "{index}" placeholder form
	// treated as always admissible since its concrete expansions fall within the
	// already-checked index pattern).
	Aliases []name.Name
}
