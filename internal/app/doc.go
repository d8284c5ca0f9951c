// Package app is the composition root of Alfred.
//
// # Package Structure
//
//	internal/app/
//	├── domain/             # Users, profiles and conversation entries (pure data)
//	├── storage/            # Store interface with memory, postgres and firestore backends
//	├── services/chat/      # Login, account management, text and voice chat
//	├── auth/               # Session cookies, flashes, revocation and password hashing
//	├── httpapi/            # Routes, page templates and the admin audit trail
//	├── metrics/            # Prometheus collectors
//	└── runtime/            # Wiring and HTTP server lifecycle
//
// Google model and speech clients live in internal/google and are consumed
// through the small interfaces declared by services/chat.
package app
