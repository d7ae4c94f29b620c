// Package jwt signs and verifies compact HS256 JSON Web Tokens.
//
// Only HS256 is accepted; tokens declaring any other alg are rejected before
// the signature is checked. Claims types that embed StandardClaims get exp,
// nbf, issuer and audience validation automatically:
//
//	type Claims struct {
//	    jwt.StandardClaims
//	    Email string `json:"email"`
//	}
//
//	svc, _ := jwt.NewFromString(secret, jwt.WithLeeway(30*time.Second))
//	var c Claims
//	if err := svc.Parse(token, &c); err != nil {
//	    // reject
//	}
package jwt
