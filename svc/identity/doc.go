// Package identity turns identity-provider bearer tokens into explicit
// sessions and publishes sign-in and sign-out changes.
//
// Tokens are HS256 JWTs issued by the external identity provider. An
// Authenticator validates them and builds a Session; a Manager tracks live
// sessions and fans Change notifications out to subscribers:
//
//	auth, err := identity.NewAuthenticator(cfg)
//	mgr := identity.NewManager(identity.WithManagerLogger(log))
//	defer mgr.Close()
//
//	r.Use(identity.Middleware(auth, mgr, log))
//
//	sub := mgr.Subscribe(ctx)
//	for msg := range sub.Receive() {
//		if msg.Data.Kind == identity.SignedIn {
//			// warm entitlement for msg.Data.Session.Email
//		}
//	}
//
// Handlers read the caller with SessionFromContext.
package identity
