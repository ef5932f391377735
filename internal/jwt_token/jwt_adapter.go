package jwttoken

import (
	"impfportal/internal/platform/middleware"
)

// JWTServiceAdapter bridges the token service to the middleware's validator
// interface, so the middleware never depends on jwt library types.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		PersonID: claims.PersonID,
		Roles:    claims.Roles,
	}, nil
}
