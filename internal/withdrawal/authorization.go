package withdrawal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/Mohsinsiddi/auctionbridge/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDomainTag separates withdrawal signatures from any other message
// the same key might sign. Changing the payload layout requires a new tag.
const DefaultDomainTag = "AUCTIONBRIDGE_WITHDRAW_V1"

// IDLen is the width of a withdrawal id.
const IDLen = 32

// Authorization is a signed, single-use capability to withdraw AmountRaw
// to Holder through ContractAddress before Expiry.
type Authorization struct {
	WithdrawalID    [IDLen]byte
	Holder          auction.Address
	AmountHuman     decimal.Decimal
	AmountRaw       *uint256.Int
	Expiry          uint64 // epoch ms
	Signature       []byte
	ContractAddress auction.Address
	Signer          common.Address
	DomainTag       string
}

// BuildPayload lays out the signed bytes exactly as the contract rebuilds
// them: tag || holder(32) || amount(32 BE) || id(32) || expiry(8 BE).
func BuildPayload(tag string, holder auction.Address, amount *uint256.Int, id [IDLen]byte, expiryMs uint64) []byte {
	buf := make([]byte, 0, len(tag)+auction.AddressLen+32+IDLen+8)
	buf = append(buf, tag...)
	buf = append(buf, holder[:]...)
	amt := amount.Bytes32()
	buf = append(buf, amt[:]...)
	buf = append(buf, id[:]...)
	return binary.BigEndian.AppendUint64(buf, expiryMs)
}

// Digest is the Keccak-256 hash that gets signed.
func Digest(payload []byte) []byte {
	return crypto.Keccak256(payload)
}

// ID returns the withdrawal id in its ledger form.
func (a *Authorization) ID() string { return FormatID(a.WithdrawalID) }

// Payload rebuilds the signed bytes.
func (a *Authorization) Payload() []byte {
	return BuildPayload(a.DomainTag, a.Holder, a.AmountRaw, a.WithdrawalID, a.Expiry)
}

// ExpiresAt returns Expiry as a time.
func (a *Authorization) ExpiresAt() time.Time { return time.UnixMilli(int64(a.Expiry)) }

// Verify performs the checks the contract performs off-chain: not expired
// at now and signed by trusted. Single use can only be enforced on-chain.
func (a *Authorization) Verify(trusted common.Address, now time.Time) error {
	if ms := now.UnixMilli(); ms >= 0 && uint64(ms) >= a.Expiry {
		return fmt.Errorf("%w at %s", ErrAuthorizationExpired, a.ExpiresAt().UTC().Format(time.RFC3339))
	}
	got, err := signer.Recover(Digest(a.Payload()), a.Signature)
	if err != nil {
		return err
	}
	if got != trusted {
		return fmt.Errorf("%w: recovered %s", ErrUntrustedSigner, got.Hex())
	}
	return nil
}

// FormatID renders an id as lowercase 0x-prefixed hex.
func FormatID(id [IDLen]byte) string { return hexutil.Encode(id[:]) }

// ParseID parses a withdrawal id.
func ParseID(s string) ([IDLen]byte, error) {
	var id [IDLen]byte
	b, err := hexutil.Decode(normalizeID(s))
	if err != nil {
		return id, fmt.Errorf("invalid withdrawal id %q: %w", s, err)
	}
	if len(b) != IDLen {
		return id, fmt.Errorf("invalid withdrawal id %q: expected %d bytes, got %d", s, IDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func normalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

type authorizationJSON struct {
	WithdrawalID    string `json:"withdrawal_id"`
	Holder          string `json:"holder"`
	Amount          string `json:"amount"`
	AmountRaw       string `json:"amount_raw"`
	Expiry          uint64 `json:"expiry"`
	Signature       string `json:"signature"`
	ContractAddress string `json:"contract_address"`
	Signer          string `json:"signer"`
	DomainTag       string `json:"domain_tag"`
}

func (a Authorization) MarshalJSON() ([]byte, error) {
	raw := "0"
	if a.AmountRaw != nil {
		raw = a.AmountRaw.Dec()
	}
	return json.Marshal(authorizationJSON{
		WithdrawalID:    a.ID(),
		Holder:          a.Holder.Hex(),
		Amount:          a.AmountHuman.String(),
		AmountRaw:       raw,
		Expiry:          a.Expiry,
		Signature:       hexutil.Encode(a.Signature),
		ContractAddress: a.ContractAddress.Hex(),
		Signer:          a.Signer.Hex(),
		DomainTag:       a.DomainTag,
	})
}

func (a *Authorization) UnmarshalJSON(data []byte) error {
	var j authorizationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	id, err := ParseID(j.WithdrawalID)
	if err != nil {
		return err
	}
	holder, err := auction.ParseAddress(j.Holder)
	if err != nil {
		return fmt.Errorf("holder: %w", err)
	}
	contract, err := auction.ParseAddress(j.ContractAddress)
	if err != nil {
		return fmt.Errorf("contract_address: %w", err)
	}
	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	raw, err := uint256.FromDecimal(j.AmountRaw)
	if err != nil {
		return fmt.Errorf("amount_raw: %w", err)
	}
	sig, err := hexutil.Decode(j.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if !common.IsHexAddress(j.Signer) {
		return fmt.Errorf("signer: invalid address %q", j.Signer)
	}
	*a = Authorization{
		WithdrawalID:    id,
		Holder:          holder,
		AmountHuman:     amount,
		AmountRaw:       raw,
		Expiry:          j.Expiry,
		Signature:       sig,
		ContractAddress: contract,
		Signer:          common.HexToAddress(j.Signer),
		DomainTag:       j.DomainTag,
	}
	return nil
}
