package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// Wire types for exchange actions. Field order matters: the action hash is
// computed over the msgpack encoding, which follows declaration order.

type limitTif struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type orderType struct {
	Limit limitTif `msgpack:"limit" json:"limit"`
}

type wireOrder struct {
	Asset      int       `msgpack:"a" json:"a"`
	IsBuy      bool      `msgpack:"b" json:"b"`
	Price      string    `msgpack:"p" json:"p"`
	Size       string    `msgpack:"s" json:"s"`
	ReduceOnly bool      `msgpack:"r" json:"r"`
	Type       orderType `msgpack:"t" json:"t"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []wireOrder `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type leverageAction struct {
	Type     string `msgpack:"type" json:"type"`
	Asset    int    `msgpack:"asset" json:"asset"`
	IsCross  bool   `msgpack:"isCross" json:"isCross"`
	Leverage int    `msgpack:"leverage" json:"leverage"`
}

type signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

// signer holds the API wallet key used for all write calls. Reads never
// touch it.
type signer struct {
	key     *ecdsa.PrivateKey
	mainnet bool
}

func newSigner(privateKeyHex string, mainnet bool) (*signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &signer{key: key, mainnet: mainnet}, nil
}

func (s *signer) address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// actionHash is keccak over msgpack(action) || nonce (8-byte BE) || vault tag.
func actionHash(action interface{}, nonce uint64) ([]byte, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("msgpack action: %w", err)
	}
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	data = append(data, nonceBuf[:]...)
	data = append(data, 0x00) // no vault
	return crypto.Keccak256(data), nil
}

// sign produces the phantom-agent EIP-712 signature over the action hash.
func (s *signer) sign(action interface{}, nonce uint64) (signature, error) {
	hash, err := actionHash(action, nonce)
	if err != nil {
		return signature{}, err
	}

	source := "b"
	if s.mainnet {
		source = "a"
	}

	digest := agentDigest(source, hash)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return signature{}, fmt.Errorf("sign action: %w", err)
	}

	return signature{
		R: "0x" + common.Bytes2Hex(sig[:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// agentDigest builds the EIP-712 digest for the phantom agent:
// domain {name:"Exchange", version:"1", chainId:1337, verifyingContract:0x0},
// primary type Agent(string source, bytes32 connectionId).
func agentDigest(source string, connectionID []byte) []byte {
	domainTypeHash := crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	agentTypeHash := crypto.Keccak256([]byte("Agent(string source,bytes32 connectionId)"))

	domainSeparator := crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte("Exchange")),
		crypto.Keccak256([]byte("1")),
		common.LeftPadBytes([]byte{0x05, 0x39}, 32), // chainId 1337
		common.LeftPadBytes(common.Address{}.Bytes(), 32),
	)

	structHash := crypto.Keccak256(
		agentTypeHash,
		crypto.Keccak256([]byte(source)),
		common.LeftPadBytes(connectionID, 32),
	)

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
}
