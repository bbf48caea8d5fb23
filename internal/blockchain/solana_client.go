package blockchain

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrTransactionRejected means the node refused the transaction; it was never executed
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrTransactionFailed means the transaction landed but its execution failed
	ErrTransactionFailed = errors.New("transaction failed on chain")
	// ErrConfirmationTimeout means the outcome is unknown: the transaction may still land
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

const confirmPollInterval = 500 * time.Millisecond

// TokenHolding is the state of an owner's associated token account for the configured mint
type TokenHolding struct {
	Address string
	Exists  bool
	Amount  uint64
}

// SignatureState is what the cluster currently knows about a signature
type SignatureState int

const (
	SignatureUnknown SignatureState = iota
	SignatureConfirmed
	SignatureFailed
)

func (s SignatureState) String() string {
	switch s {
	case SignatureConfirmed:
		return "confirmed"
	case SignatureFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PreparedTransfer is a signed token transfer that has not been broadcast yet.
// Signature is final once prepared and identifies the transfer on chain.
type PreparedTransfer struct {
	Signature          string
	Source             string
	Destination        string
	Amount             uint64
	CreatesDestination bool

	tx *solana.Transaction
}

// SolanaClient handles Solana blockchain interactions for the configured token mint
type SolanaClient struct {
	rpcClient *rpc.Client
	rpcURL    string
	network   string
	tokenMint solana.PublicKey
	limiter   *rate.Limiter
	log       *zap.Logger
}

// NewSolanaClient creates a new Solana client. rateLimit is requests per second; 0 disables limiting.
func NewSolanaClient(rpcURL, network, tokenMint string, rateLimit float64, log *zap.Logger) (*SolanaClient, error) {
	mint, err := solana.PublicKeyFromBase58(tokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address: %w", err)
	}

	if rpcURL == "" {
		switch network {
		case "mainnet-beta":
			rpcURL = rpc.MainNetBeta_RPC
		case "testnet":
			rpcURL = rpc.TestNet_RPC
		default:
			rpcURL = rpc.DevNet_RPC
		}
	}

	client := &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
		network:   network,
		tokenMint: mint,
		log:       log.Named("solana"),
	}
	if rateLimit > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit)+1)
	}

	client.log.Info("solana client configured",
		zap.String("network", network),
		zap.String("rpc_url", rpcURL),
		zap.String("token_mint", mint.String()),
	)
	return client, nil
}

func (s *SolanaClient) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// ValidateWalletAddress validates a Solana wallet address format
func ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// NativeBalance returns the lamport balance of an address
func (s *SolanaClient) NativeBalance(ctx context.Context, owner string) (uint64, error) {
	pubKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner address: %w", err)
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}

	balance, err := s.rpcClient.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// TokenAccountAddress derives the owner's associated token account for the mint
func (s *SolanaClient) TokenAccountAddress(owner string) (string, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return "", fmt.Errorf("invalid owner address: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(ownerKey, s.tokenMint)
	if err != nil {
		return "", fmt.Errorf("failed to derive token account: %w", err)
	}
	return ata.String(), nil
}

// TokenHolding reads the owner's associated token account. A missing account
// is reported with Exists=false and a zero amount, not as an error.
func (s *SolanaClient) TokenHolding(ctx context.Context, owner string) (TokenHolding, error) {
	ataAddress, err := s.TokenAccountAddress(owner)
	if err != nil {
		return TokenHolding{}, err
	}
	holding := TokenHolding{Address: ataAddress}

	account, err := s.getAccount(ctx, solana.MustPublicKeyFromBase58(ataAddress))
	if errors.Is(err, rpc.ErrNotFound) {
		return holding, nil
	}
	if err != nil {
		return TokenHolding{}, fmt.Errorf("failed to get token account: %w", err)
	}

	var tokenAccount token.Account
	if err := tokenAccount.UnmarshalWithDecoder(bin.NewBinDecoder(account.Data.GetBinary())); err != nil {
		return TokenHolding{}, fmt.Errorf("failed to decode token account data: %w", err)
	}

	holding.Exists = true
	holding.Amount = tokenAccount.Amount
	return holding, nil
}

// AccountFingerprint summarizes an account's lamports and data so pollers can detect changes
func (s *SolanaClient) AccountFingerprint(ctx context.Context, address string) (string, error) {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("invalid address: %w", err)
	}

	account, err := s.getAccount(ctx, pubKey)
	if errors.Is(err, rpc.ErrNotFound) {
		return "missing", nil
	}
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(account.Data.GetBinary())
	return fmt.Sprintf("%d:%x", account.Lamports, sum[:8]), nil
}

func (s *SolanaClient) getAccount(ctx context.Context, pubKey solana.PublicKey) (*rpc.Account, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	info, err := s.rpcClient.GetAccountInfoWithOpts(ctx, pubKey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, err
	}
	return info.Value, nil
}

// PrepareTokenTransfer builds and signs a transfer of amount base units from the
// signer's token account to the destination owner's token account, creating the
// destination account first when it does not exist yet.
func (s *SolanaClient) PrepareTokenTransfer(
	ctx context.Context,
	signer solana.PrivateKey,
	destinationOwner string,
	amount uint64,
) (*PreparedTransfer, error) {
	destination, err := solana.PublicKeyFromBase58(destinationOwner)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}
	owner := signer.PublicKey()

	sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, s.tokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destinationATA, _, err := solana.FindAssociatedTokenAddress(destination, s.tokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	var instructions []solana.Instruction

	_, err = s.getAccount(ctx, destinationATA)
	createsDestination := errors.Is(err, rpc.ErrNotFound)
	if err != nil && !createsDestination {
		return nil, fmt.Errorf("failed to check destination token account: %w", err)
	}
	if createsDestination {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(owner, destination, s.tokenMint).Build())
	}

	instructions = append(instructions,
		token.NewTransferInstruction(amount, sourceATA, destinationATA, owner, []solana.PublicKey{}).Build())

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	recent, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &PreparedTransfer{
		Signature:          tx.Signatures[0].String(),
		Source:             owner.String(),
		Destination:        destination.String(),
		Amount:             amount,
		CreatesDestination: createsDestination,
		tx:                 tx,
	}, nil
}

// SubmitAndConfirm broadcasts a prepared transfer and blocks until the cluster
// confirms it or ctx expires. A ctx expiry yields ErrConfirmationTimeout.
func (s *SolanaClient) SubmitAndConfirm(ctx context.Context, transfer *PreparedTransfer) error {
	if transfer == nil || transfer.tx == nil {
		return fmt.Errorf("%w: transfer was not prepared", ErrTransactionRejected)
	}

	if err := s.wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmationTimeout, err)
	}

	sig, err := s.rpcClient.SendTransactionWithOpts(ctx, transfer.tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConfirmationTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		state, err := s.signatureState(ctx, sig)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("signature status lookup failed", zap.String("signature", sig.String()), zap.Error(err))
		}

		switch state {
		case SignatureConfirmed:
			return nil
		case SignatureFailed:
			return fmt.Errorf("%w: signature %s", ErrTransactionFailed, sig)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: signature %s", ErrConfirmationTimeout, sig)
		case <-ticker.C:
		}
	}
}

// SignatureState looks a signature up, searching transaction history
func (s *SolanaClient) SignatureState(ctx context.Context, signature string) (SignatureState, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return SignatureUnknown, fmt.Errorf("invalid signature: %w", err)
	}
	return s.signatureState(ctx, sig)
}

func (s *SolanaClient) signatureState(ctx context.Context, sig solana.Signature) (SignatureState, error) {
	if err := s.wait(ctx); err != nil {
		return SignatureUnknown, err
	}

	status, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return SignatureUnknown, nil
	}
	if err != nil {
		return SignatureUnknown, err
	}
	if len(status.Value) == 0 || status.Value[0] == nil {
		return SignatureUnknown, nil
	}

	result := status.Value[0]
	if result.Err != nil {
		s.log.Warn("transaction execution failed", zap.String("signature", sig.String()), zap.Any("err", result.Err))
		return SignatureFailed, nil
	}

	switch result.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return SignatureConfirmed, nil
	default:
		return SignatureUnknown, nil
	}
}
