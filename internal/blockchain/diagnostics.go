package blockchain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// DiagnosticResult holds the result of a Solana connectivity diagnostic
type DiagnosticResult struct {
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url"`
	Network         string `json:"network"`
	RPCError        string `json:"rpc_error,omitempty"`
	NodeHealth      string `json:"node_health,omitempty"`
	LatestBlockhash string `json:"latest_blockhash,omitempty"`
	TokenMint       string `json:"token_mint"`
	TokenMintFound  bool   `json:"token_mint_found"`
	TokenMintError  string `json:"token_mint_error,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Healthy reports whether transfers can currently be attempted
func (d *DiagnosticResult) Healthy() bool {
	return d.RPCConnected && d.TokenMintFound
}

// RunDiagnostics checks RPC connectivity and that the configured mint exists
func (s *SolanaClient) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RPCURL:    s.rpcURL,
		Network:   s.network,
		TokenMint: s.tokenMint.String(),
	}

	health, err := s.rpcClient.GetHealth(ctx)
	if err == nil {
		result.NodeHealth = health
	}

	blockhash, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		result.RPCError = err.Error()
		s.log.Warn("diagnostics: rpc unreachable", zap.Error(err))
	} else {
		result.RPCConnected = true
		result.LatestBlockhash = blockhash.Value.Blockhash.String()
	}

	if result.RPCConnected {
		_, err := s.getAccount(ctx, s.tokenMint)
		switch {
		case err == nil:
			result.TokenMintFound = true
		case errors.Is(err, rpc.ErrNotFound):
			result.TokenMintError = "mint account not found on " + s.network
		default:
			result.TokenMintError = err.Error()
		}
	}

	return result
}
