package directory

// PermManageDirectory guards the administrative directory endpoints.
const PermManageDirectory = "directory.manage"

var BuiltinPermissions = []Permission{
	{Code: PermManageDirectory, Category: "admin"},
}
