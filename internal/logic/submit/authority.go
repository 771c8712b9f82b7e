package submit

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"go.uber.org/atomic"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

// Authority 公钥 + 签名能力。私钥只在进程内使用，从不参与序列化；
// Release 之后私钥被清零，不能再签名。
type Authority struct {
	mu       sync.RWMutex
	account  sdktypes.Account
	released atomic.Bool
}

func NewAuthority(account sdktypes.Account) *Authority {
	return &Authority{account: account}
}

// AuthorityFromSecret 64 字节 secret key（Solana keypair 格式）。
// SDK 直接引用传入的切片作为私钥，这里先复制，调用方可以随后清零自己的缓冲区。
func AuthorityFromSecret(secret []byte) (*Authority, error) {
	acc, err := sdktypes.AccountFromBytes(bytes.Clone(secret))
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	return NewAuthority(acc), nil
}

// AuthorityFromSeed 32 字节 ed25519 seed
func AuthorityFromSeed(seed []byte) (*Authority, error) {
	acc, err := sdktypes.AccountFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return NewAuthority(acc), nil
}

// LoadAuthority 读取 solana-keygen 生成的 keypair 文件（64 个数字的 JSON 数组）
func LoadAuthority(path string) (*Authority, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	var secret []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	secret = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair %s: byte #%d out of range", path, i)
		}
		secret[i] = byte(v)
	}
	defer clear(secret)
	return AuthorityFromSecret(secret)
}

func (a *Authority) Pubkey() types.Pubkey {
	return types.FromCommon(a.account.PublicKey)
}

func (a *Authority) Released() bool {
	return a.released.Load()
}

// Sign 对任意字节签名
func (a *Authority) Sign(message []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.released.Load() {
		return nil, core.Errorf(core.KindAuthorityReleased, "authority %s already released", a.Pubkey())
	}
	return ed25519.Sign(a.account.PrivateKey, message), nil
}

// Release 清零私钥，之后所有签名操作失败
func (a *Authority) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released.Swap(true) {
		return
	}
	clear(a.account.PrivateKey)
}

// withAccount 在读锁内使用 SDK 账户，保证签名期间不会被 Release
func (a *Authority) withAccount(fn func(sdktypes.Account) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.released.Load() {
		return core.Errorf(core.KindAuthorityReleased, "authority %s already released", a.Pubkey())
	}
	return fn(a.account)
}
