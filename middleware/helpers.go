package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/services"
	"github.com/golang-jwt/jwt/v4"
)

var errNoClaims = errors.New("user claims not found in context or invalid type")

func GetResearcherIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errNoClaims
	}

	idClaim, ok := claims[services.ClaimUserID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", services.ClaimUserID)
	}
	id, ok := idClaim.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("invalid type for '%s' claim: expected non-empty string, got %T", services.ClaimUserID, idClaim)
	}
	return id, nil
}

func GetRoleFromContext(ctx context.Context) (models.ResearcherRole, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errNoClaims
	}

	roleClaim, ok := claims[services.ClaimRole]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", services.ClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", services.ClaimRole, roleClaim)
	}

	role := models.ResearcherRole(roleStr)
	switch role {
	case models.RoleSuperuser, models.RoleResearcher:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role value in claim: %q", roleStr)
	}
}

// PrincipalFromContext builds the access principal of an authenticated
// request.
func PrincipalFromContext(ctx context.Context) (services.Principal, error) {
	id, err := GetResearcherIDFromContext(ctx)
	if err != nil {
		return services.Principal{}, err
	}
	role, err := GetRoleFromContext(ctx)
	if err != nil {
		return services.Principal{}, err
	}
	return services.Principal{ResearcherID: id, IsSuperuser: role == models.RoleSuperuser}, nil
}

// WithClaims returns ctx carrying claims as Authenticate would store them.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}
