package model

// Target is the configured deployment target as exposed over the API.
// Credentials are never included.
type Target struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	RemoteDir string `json:"remoteDir"`
	SiteURL   string `json:"siteUrl"`
	Domain    string `json:"domain,omitempty"`
	Service   string `json:"service"`
}
