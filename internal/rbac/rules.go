package rbac

const (
	PermImport   = "question:import"   // parse uploads and stage sessions
	PermValidate = "question:validate" // structure checks only
	PermSave     = "question:save"     // write into the bank
	PermEvents   = "events:view"
)

// Known lists every permission the service checks.
var Known = []string{PermImport, PermValidate, PermSave, PermEvents}

var RolePermissions = map[string][]string{
	"teacher": {
		"question:*",
	},
	"reviewer": {
		PermValidate,
	},
	"admin": {
		"*", // everything
	},
}
