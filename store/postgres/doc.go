// Package postgres implements the refresh token store on PostgreSQL via
// pgx. Rotation is a single transaction: SELECT ... FOR UPDATE on the
// presented head, a conditional revoke, and the insert of the replacement.
package postgres
