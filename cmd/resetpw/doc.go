// Command resetpw provides a CLI utility for access key administration in
// the media viewer application.
//
// It supports the following operations:
//   - list:       show every access key owned by a given user
//   - create:     mint a new access key
//   - revoke:     permanently delete an access key
//   - regenerate: rotate an access key's opaque code, invalidating the old one
//
// Usage:
//
//	resetpw <command> [flags]
//
// Commands:
//
//	list       -owner <id>
//	           List every access key owned by the given user id.
//
//	create     -owner <id> -description <text> -permission <read|download|edit|delete|admin>
//	           [-expires <duration>] [-group <id>]
//	           Mint a new access key and print its opaque code once. The code
//	           is never stored anywhere but the database's own column; losing
//	           it means regenerating a new one.
//
//	revoke     -id <key id>
//	           Permanently delete an access key. Requires the operator to
//	           type the key's current code at a masked prompt first, proving
//	           they hold the secret being destroyed rather than just its
//	           database id.
//
//	regenerate -id <key id>
//	           Rotate a key's opaque code. Requires the operator to type the
//	           current code at a masked prompt before a new one is minted and
//	           printed. The old code stops granting access immediately.
//
// Environment:
//
//	DATABASE_DIR - Path to database directory (default: /database)
//
// Notes:
//
// This utility largely replaces what was once a single WebAuthn admin
// password reset tool: since session and identity binding are handled
// outside this module, the thing worth resetting from the command line is
// an access key's opaque code, not a user's login credential.
package main
