package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/wordroyale/internal/api/roundrpc"
	"github.com/victornm/wordroyale/internal/errors"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

var _ roundrpc.RoundServiceServer = (*API)(nil)

// GRPCAuth requires the trigger secret as a bearer token on every unary call except
// health checks.
func GRPCAuth(secret string) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(auth.UnaryServerInterceptor(grpcAuthFunc(secret)))
}

func grpcAuthFunc(secret string) auth.AuthFunc {
	return func(ctx context.Context) (context.Context, error) {
		if method, _ := grpc.Method(ctx); strings.HasPrefix(method, healthServicePrefix) {
			return ctx, nil
		}

		token, err := auth.AuthFromMD(ctx, "bearer")
		if err != nil {
			return nil, err
		}
		if !validSecret(token, secret) {
			return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid trigger secret"))
		}

		return ctx, nil
	}
}

func (a *API) ProcessCurrent(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := a.ps.ProcessCurrent(ctx)
	if err != nil {
		return nil, err
	}

	return toStruct(toProcessResult(res))
}

func (a *API) ProcessAll(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sweep, err := a.ps.ProcessAll(ctx)
	if err != nil {
		return nil, err
	}

	return toStruct(toProcessAllResult(sweep))
}

func (a *API) ProcessGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID := req.GetFields()["game_id"].GetStringValue()
	if gameID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("game_id is required"))
	}

	res, err := a.ps.ProcessGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	return toStruct(toProcessResult(res))
}

func (a *API) StartGame(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := a.lcs.StartGame(ctx)
	if err != nil {
		return nil, err
	}

	out := StartGameResult{}
	if res != nil {
		out = StartGameResult{Started: true, GameID: res.GameID, PlayerCount: res.PlayerCount}
	}

	return toStruct(out)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("marshal response: %w", err))
	}

	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, errors.Internal(fmt.Errorf("convert response: %w", err))
	}

	return s, nil
}
