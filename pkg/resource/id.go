package resource

import "github.com/google/uuid"

// idNamespace is the fixed UUID namespace all deterministic identifiers
// are derived in. Changing it would re-key every stored resource.
var idNamespace = uuid.MustParse("5f9a2b44-7c31-4a8e-9d06-1b3f8e42c7a1")

// DefinitionID derives the deterministic identifier of a policy definition
// from its name and scope. The same name at the same scope always yields
// the same id, which is what makes re-applying a workspace idempotent.
func DefinitionID(name string, scope Scope) string {
	return uuid.NewSHA1(idNamespace, []byte(scope.String()+"/providers/Microsoft.Authorization/policyDefinitions/"+name)).String()
}

// AssignmentID derives the deterministic identifier of a policy assignment
// from its name and scope.
func AssignmentID(name string, scope Scope) string {
	return uuid.NewSHA1(idNamespace, []byte(scope.String()+"/providers/Microsoft.Authorization/policyAssignments/"+name)).String()
}

// InventoryID derives the deterministic identifier of an admitted resource
// from its type, name, and scope.
func InventoryID(resourceType, name string, scope Scope) string {
	return uuid.NewSHA1(idNamespace, []byte(scope.String()+"/providers/"+resourceType+"/"+name)).String()
}
