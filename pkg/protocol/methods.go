package protocol

// Template keys for outbound commands sent to the moderation bot.
// Each key maps to an operator-configured template in config.TemplatesConfig.
const (
	TemplateClaim    = "claim"
	TemplateInfo     = "info"
	TemplateLock     = "lock"
	TemplateUnlock   = "unlock"
	TemplateLimit    = "limit"
	TemplateRename   = "rename"
	TemplateKick     = "kick"
	TemplateBan      = "ban"
	TemplateUnban    = "unban"
	TemplatePermit   = "permit"
	TemplateUnpermit = "unpermit"
)

// Menu kinds the host UI (or the local HTTP API) may ask modules to populate.
const (
	MenuUser    = "user"
	MenuChannel = "channel"
	MenuGuild   = "guild"
	MenuToolbox = "toolbox"
)
