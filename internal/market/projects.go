package market

// DefaultProjects is the hackathon lineup created on a fresh deployment
func DefaultProjects() []ProjectMetadata {
	return []ProjectMetadata{
		{Name: "DeFi Yield Aggregator", Description: "Automated yield optimization across multiple protocols", Category: "DeFi", TeamName: "Yield Masters"},
		{Name: "NFT Marketplace for Musicians", Description: "Platform for musicians to mint and sell music NFTs", Category: "NFT", TeamName: "SoundChain"},
		{Name: "Web3 Gaming Platform", Description: "Play-to-earn gaming ecosystem with token rewards", Category: "Gaming", TeamName: "GameFi Studios"},
		{Name: "DAO Governance Tool", Description: "Streamlined voting and proposal management for DAOs", Category: "DAO", TeamName: "GovTech"},
		{Name: "Decentralized Social Network", Description: "Privacy-focused social media on blockchain", Category: "Social", TeamName: "SocialWeb3"},
		{Name: "Carbon Credit Marketplace", Description: "Tokenized carbon credits trading platform", Category: "Climate", TeamName: "GreenChain"},
		{Name: "Crypto Payment Gateway", Description: "Easy crypto payments for e-commerce", Category: "Payments", TeamName: "PayFlow"},
		{Name: "Identity Verification Protocol", Description: "Decentralized identity and KYC solution", Category: "Identity", TeamName: "TrustID"},
		{Name: "Prediction Market Platform", Description: "Bet on future events with transparent odds", Category: "Prediction", TeamName: "FutureBets"},
		{Name: "Supply Chain Tracker", Description: "Blockchain-based supply chain transparency", Category: "Supply Chain", TeamName: "ChainTrace"},
		{Name: "Decentralized Exchange", Description: "Fast and cheap token swaps with minimal slippage", Category: "DeFi", TeamName: "SwapLab"},
		{Name: "AI-Powered Trading Bot", Description: "Automated trading strategies using machine learning", Category: "Trading", TeamName: "BotTraders"},
	}
}
