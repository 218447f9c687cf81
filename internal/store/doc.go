// Package store persists the product's relational entities (leads,
// applications, directory listings, chat, visitor sessions, changelog,
// health alerts, audit jobs) through GORM. Append-heavy rows live in
// internal/storage/postgres instead.
package store
