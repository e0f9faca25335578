package types

import (
	"encoding/json"
	"time"
)

// DayLayout is the key format of ScrapeResult.TweetsPerDay.
const DayLayout = "2006-01-02"

// UserInfo describes the scraped subject together with the window the
// histogram covers.
type UserInfo struct {
	Username               string     `json:"username"`
	Name                   string     `json:"name"`
	ProfileImageURL        string     `json:"profile"`
	TweetCount             int        `json:"tweet_count"`
	IsVerified             bool       `json:"is_verified"`
	CreatedAt              *time.Time `json:"created_at"`
	HasDefaultProfileImage bool       `json:"has_default_profile_image"`
	StartDate              *time.Time `json:"start_date"`
	EndDate                time.Time  `json:"end_date"`
}

// ScrapeResult is the immutable outcome of one successful scrape.
type ScrapeResult struct {
	UserInfo           UserInfo       `json:"user_info"`
	TweetsPerDay       map[string]int `json:"tweets_per_day"`
	TotalTweetsFetched int            `json:"total_tweets_fetched"`
}

// WindowStart is the oldest tweet timestamp kept, nil when nothing was kept.
func (r ScrapeResult) WindowStart() *time.Time {
	return r.UserInfo.StartDate
}

// WindowEnd is the instant the scrape finished.
func (r ScrapeResult) WindowEnd() time.Time {
	return r.UserInfo.EndDate
}

// Marshal serializes the result for the persistent cache.
func (r ScrapeResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalScrapeResult is the inverse of ScrapeResult.Marshal.
func UnmarshalScrapeResult(data []byte) (ScrapeResult, error) {
	var r ScrapeResult
	err := json.Unmarshal(data, &r)
	return r, err
}
