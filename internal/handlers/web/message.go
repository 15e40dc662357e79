package web

const (
	MsgMissingAuthorizeFields = "Organization and personal access token are required."
	MsgMissingRedirectURI     = "Missing redirect_uri. Start the flow from your Git client again."
	MsgPATRejected            = "Azure DevOps rejected the personal access token."
	MsgSessionExpired         = "This authorization session has expired. Please start again."
)
