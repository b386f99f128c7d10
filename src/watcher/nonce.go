package watcher

import (
	"math/big"

	"github.com/warp-contracts/tempo-watchtower/src/codec"
	"github.com/warp-contracts/tempo-watchtower/src/rpcfleet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The nonce precompile exposing getNonce(address,uint256) for
// non-zero nonce keys.
var noncePrecompileAddress = common.HexToAddress("0x4e4f4e4345000000000000000000000000000000")

var getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint256)"))[:4]

// fetchCurrentNonce looks up the pair's current nonce. The zero nonce
// key is the chain's plain account nonce (eth_getTransactionCount);
// any other key goes through the nonce precompile. Random nonce keys
// have no nonce stream to query, so ok is false for them.
func (self *Watcher) fetchCurrentNonce(chain *rpcfleet.ChainRpc, sender, nonceKey []byte) (current uint64, ok bool, err error) {
	if codec.IsRandomNonceKey(nonceKey) {
		return 0, false, nil
	}

	senderAddr := common.BytesToAddress(sender)
	client := chain.Endpoints[0].Client

	if isZeroNonceKey(nonceKey) {
		current, err = client.NonceAt(self.Ctx, senderAddr, nil)
		if err != nil {
			return 0, false, err
		}
		return current, true, nil
	}

	msg := ethereum.CallMsg{
		To:   &noncePrecompileAddress,
		Data: getNonceCallData(senderAddr, nonceKey),
	}
	out, err := client.CallContract(self.Ctx, msg, nil)
	if err != nil {
		return 0, false, err
	}

	return new(big.Int).SetBytes(out).Uint64(), true, nil
}

func getNonceCallData(account common.Address, nonceKey []byte) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, getNonceSelector...)
	data = append(data, common.LeftPadBytes(account.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(nonceKey, 32)...)
	return data
}

func isZeroNonceKey(nonceKey []byte) bool {
	for _, b := range nonceKey {
		if b != 0 {
			return false
		}
	}
	return true
}
