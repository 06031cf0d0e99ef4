package model

type DeployRequest struct {
	SkipBuild bool `json:"skipBuild"`
}

type DomainCheckRequest struct {
	Domain string `form:"domain"`
}
