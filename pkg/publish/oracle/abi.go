package oracle

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal subset of the MultiAssetOracle contract surface. Prices are
// fixed-point uint256 scaled by 10^decimals; asset ids are bytes32 hashes.
const oracleABIJSON = `[
	{
		"type": "function",
		"name": "updatePrice",
		"inputs": [
			{"name": "assetId", "type": "bytes32"},
			{"name": "newPrice", "type": "uint256"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "batchUpdatePrices",
		"inputs": [
			{"name": "assetIds", "type": "bytes32[]"},
			{"name": "newPrices", "type": "uint256[]"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "getPrice",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getPriceData",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [
			{"name": "price", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "isAssetRegistered",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view"
	}
]`

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		panic("oracle: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var oracleABI = mustParseABI()
