package models

// PostRecord is a single normalised post as delivered to the classifier.
// Wire names follow the flattened format the classification model was
// trained on.
type PostRecord struct {
	IsReply      bool   `json:"is_reply"`
	RetweetCount int    `json:"retweet_count"`
	ReplyCount   int    `json:"reply_count"`
	LikeCount    int    `json:"like_count"`
	Text         string `json:"text"`
}

// ProfileRecord is the identity and aggregate snapshot of a scraped account.
// Posts are in discovery order.
type ProfileRecord struct {
	Handle         string       `json:"username" binding:"required"`
	DisplayName    string       `json:"name"`
	Bio            string       `json:"description"`
	Location       string       `json:"location"`
	FollowersCount int          `json:"followers_count" binding:"min=0"`
	FollowingCount int          `json:"following_count" binding:"min=0"`
	PostCount      int          `json:"tweet_count" binding:"min=0"`
	Posts          []PostRecord `json:"tweets"`
}
