package testutil

import (
	"context"

	"github.com/subplane/subplane/internal/types"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxTenantID, types.DefaultTenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}

// SetupContextForUser is SetupContext with a specific user identity
func SetupContextForUser(userID string) context.Context {
	return types.SetUserID(SetupContext(), userID)
}
