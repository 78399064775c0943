// Package password provides argon2id password hashing in PHC string
// format. Verification reads the cost parameters back out of the stored
// hash, so costs can be raised without invalidating existing hashes.
package password
