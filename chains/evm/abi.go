package evm

// htlcABI is the ABI of the HTLC hub contract. The surface is shared
// bit-exact across chain families: fund, claim, refund, getDetails plus the
// chain-computed claimability views. State encoding: 0 invalid, 1 open,
// 2 claimed, 3 refunded.
const htlcABI = `[
	{
		"name": "fund",
		"type": "function",
		"stateMutability": "payable",
		"inputs": [
			{"name": "contractId", "type": "bytes32"},
			{"name": "token", "type": "address"},
			{"name": "beneficiary", "type": "address"},
			{"name": "hashLock", "type": "bytes32"},
			{"name": "timelock", "type": "uint256"},
			{"name": "value", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"name": "claim",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "contractId", "type": "bytes32"},
			{"name": "preimage", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"name": "refund",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "contractId", "type": "bytes32"}],
		"outputs": []
	},
	{
		"name": "getDetails",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "contractId", "type": "bytes32"}],
		"outputs": [
			{"name": "token", "type": "address"},
			{"name": "beneficiary", "type": "address"},
			{"name": "originator", "type": "address"},
			{"name": "hashLock", "type": "bytes32"},
			{"name": "timelock", "type": "uint256"},
			{"name": "value", "type": "uint256"},
			{"name": "state", "type": "uint8"}
		]
	},
	{
		"name": "isClaimable",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "contractId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "isRefundable",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "contractId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "getPreimage",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "contractId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bytes32"}]
	}
]`
