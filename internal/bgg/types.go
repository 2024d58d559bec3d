package bgg

// Thing is a board game or expansion from the thing endpoint
type Thing struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	YearPublished int      `json:"year_published,omitempty"`
	MinPlayers    int      `json:"min_players,omitempty"`
	MaxPlayers    int      `json:"max_players,omitempty"`
	MinPlayTime   int      `json:"min_play_time,omitempty"`
	MaxPlayTime   int      `json:"max_play_time,omitempty"`
	PlayingTime   int      `json:"playing_time,omitempty"`
	Image         string   `json:"image,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	Description   string   `json:"description,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Mechanics     []string `json:"mechanics,omitempty"`
	Designers     []string `json:"designers,omitempty"`
	Publishers    []string `json:"publishers,omitempty"`
	Stats         *Stats   `json:"stats,omitempty"`
}

// Stats are the community ratings of a thing
type Stats struct {
	UsersRated   int     `json:"users_rated"`
	Average      float64 `json:"average"`
	BayesAverage float64 `json:"bayes_average"`
	Ranks        []Rank  `json:"ranks,omitempty"`
}

// Rank is a position in one ranking. Ranked is false for "Not Ranked".
type Rank struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Value  int    `json:"value,omitempty"`
	Ranked bool   `json:"ranked"`
}

// SearchResult is one hit of the search endpoint
type SearchResult struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	YearPublished int    `json:"year_published,omitempty"`
}

// HotItem is one entry of the hotness list
type HotItem struct {
	ID            string `json:"id"`
	Rank          int    `json:"rank"`
	Name          string `json:"name"`
	YearPublished int    `json:"year_published,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
}

// CollectionItem is one entry of a user's public collection
type CollectionItem struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	YearPublished int              `json:"year_published,omitempty"`
	Image         string           `json:"image,omitempty"`
	Thumbnail     string           `json:"thumbnail,omitempty"`
	Status        CollectionStatus `json:"status"`
}

// CollectionStatus flags how the user relates to a collection item
type CollectionStatus struct {
	Own        bool `json:"own"`
	PrevOwned  bool `json:"prev_owned"`
	ForTrade   bool `json:"for_trade"`
	Want       bool `json:"want"`
	WantToPlay bool `json:"want_to_play"`
	WantToBuy  bool `json:"want_to_buy"`
	Wishlist   bool `json:"wishlist"`
	Preordered bool `json:"preordered"`
}

// Wire format of XML API2

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type xmlName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type xmlLink struct {
	Type  string `xml:"type,attr"`
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type xmlRank struct {
	ID    string `xml:"id,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlRatings struct {
	UsersRated   valueAttr `xml:"usersrated"`
	Average      valueAttr `xml:"average"`
	BayesAverage valueAttr `xml:"bayesaverage"`
	Ranks        []xmlRank `xml:"ranks>rank"`
}

type xmlThing struct {
	ID            string      `xml:"id,attr"`
	Type          string      `xml:"type,attr"`
	Names         []xmlName   `xml:"name"`
	Thumbnail     string      `xml:"thumbnail"`
	Image         string      `xml:"image"`
	Description   string      `xml:"description"`
	YearPublished valueAttr   `xml:"yearpublished"`
	MinPlayers    valueAttr   `xml:"minplayers"`
	MaxPlayers    valueAttr   `xml:"maxplayers"`
	PlayingTime   valueAttr   `xml:"playingtime"`
	MinPlayTime   valueAttr   `xml:"minplaytime"`
	MaxPlayTime   valueAttr   `xml:"maxplaytime"`
	Links         []xmlLink   `xml:"link"`
	Ratings       *xmlRatings `xml:"statistics>ratings"`
}

type xmlThings struct {
	Items []xmlThing `xml:"item"`
}

type xmlHotItem struct {
	ID            string    `xml:"id,attr"`
	Rank          string    `xml:"rank,attr"`
	Name          valueAttr `xml:"name"`
	YearPublished valueAttr `xml:"yearpublished"`
	Thumbnail     valueAttr `xml:"thumbnail"`
}

type xmlHot struct {
	Items []xmlHotItem `xml:"item"`
}

type xmlStatus struct {
	Own        string `xml:"own,attr"`
	PrevOwned  string `xml:"prevowned,attr"`
	ForTrade   string `xml:"fortrade,attr"`
	Want       string `xml:"want,attr"`
	WantToPlay string `xml:"wanttoplay,attr"`
	WantToBuy  string `xml:"wanttobuy,attr"`
	Wishlist   string `xml:"wishlist,attr"`
	Preordered string `xml:"preordered,attr"`
}

type xmlCollectionItem struct {
	ObjectID      string    `xml:"objectid,attr"`
	Name          string    `xml:"name"`
	YearPublished string    `xml:"yearpublished"`
	Image         string    `xml:"image"`
	Thumbnail     string    `xml:"thumbnail"`
	Status        xmlStatus `xml:"status"`
}

type xmlCollection struct {
	Items []xmlCollectionItem `xml:"item"`
}
