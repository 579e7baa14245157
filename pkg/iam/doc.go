// Package iam (Identity and Access Management) is the multi-tenant
// authentication core: API keys, access tokens, verification codes and the
// OAuth relay between client applications and identity providers.
//
// # Overview
//
// Every tenant is a project. A project id is also the client_id of the OAuth
// surface, and every request names its project in the X-Project-Id header.
//
//   - iam/apikey         key sets with publishable (pck_), secret server (ssk_)
//     and super secret admin (sak_) keys
//   - iam/auth           token codec, token issuer, request middleware
//   - iam/verification   generic single-use code engine and its flows
//   - iam/oauth          the two-hop OAuth relay and the token endpoint
//   - iam/provider       identity providers behind one interface
//   - iam/project        project config: domains, providers, sign-up switches
//   - iam/user           users, connected accounts and provider tokens
//
// # Architecture
//
// Each sub-domain follows the same layout:
//
//	<domain>        entities, DTOs, error registry, ports
//	<domain>srv     services
//	<domain>infra   Postgres / Redis implementations of the ports
//	<domain>api     fiber handlers
//	<domain>test    in-memory fakes for other packages' tests
//
// iamcontainer wires them; cmd/ only sees the container.
//
// # Request Authentication
//
// RequestAuthMiddleware turns headers into a kernel.AuthContext:
//
//	X-Project-Id:               proj_123
//	X-Publishable-Client-Key:   pck_...   → AccessClient
//	X-Secret-Server-Key:        ssk_...   → AccessServer
//	X-Super-Secret-Admin-Key:   sak_...   → AccessAdmin
//	Authorization:              Bearer <access token>
//
// A bearer token issued for another project is rejected. Handlers that need
// a signed-in user add auth.RequireUser(); admin routes add
// auth.RequireAccess(kernel.AccessAdmin).
//
// # OAuth Relay
//
// The client application talks OAuth to gatekeeper, and gatekeeper talks
// OAuth to the provider:
//
//	app ──authorize──▶ gatekeeper ──authorize──▶ provider
//	app ◀──code─────── gatekeeper ◀──callback─── provider
//	app ──token──────▶ gatekeeper
//
// The outer request is stored in Redis under a fresh inner state, and a
// cookie named after that state binds the callback to the browser that
// started it. The callback takes the record atomically, so a replay finds
// nothing. Shared providers use gatekeeper's own app credentials and never
// store provider tokens; standard providers use the project's credentials and
// keep refresh tokens for the connected-account endpoint.
//
// # Verification Codes
//
// A verification.Handler is parameterised by its data, method, body and
// response types. Consuming a code validates it, claims it atomically and
// then runs the flow:
//
//	contact_channel_verification   marks the email verified
//	one_time_password              signs the user in (or up)
//	password_reset                 sets a new password
//	project_transfer               moves a provisioned project to a user
//
// # Errors
//
// Each sub-domain registers its codes on an errx.Registry (APIKEY, AUTH,
// OAUTH, PROVIDER, VERIFICATION, PROJECT, USER, IAM) and errxfiber renders
// them:
//
//	{
//	  "error": "OAuth state not found or expired, restart the authorization",
//	  "code": "OAUTH_STATE_NOT_FOUND",
//	  "type": "VALIDATION",
//	  "status": 400
//	}
package iam
