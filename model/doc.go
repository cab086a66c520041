// Package model defines the provider‑agnostic abstraction that model-backed
// workers use to produce text.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Keep request/response shapes minimal (instructions in, text out)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (Anthropic, OpenAI) live in sub-packages and implement Model so
// workers remain decoupled from vendor SDKs.
package model
