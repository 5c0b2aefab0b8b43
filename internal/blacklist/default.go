package blacklist

// DefaultPatterns contains the built-in blacklist: tunnelling services,
// anonymous file drops and mining pools commonly used to exfiltrate from or
// abuse CI runners.
var DefaultPatterns = Patterns{
	Domains: []string{
		"*.ngrok.io",
		"*.ngrok-free.app",
		"*.trycloudflare.com",
		"*.serveo.net",
		"*.localtunnel.me",
		"*.loca.lt",
		"transfer.sh",
		"*.transfer.sh",
		"pastebin.com",
		"paste.ee",
		"file.io",
		"temp.sh",
		"webhook.site",
		"*.requestbin.net",
		"*.oast.fun",
		"*.oast.pro",
		"*.interact.sh",
		"*.burpcollaborator.net",
		"*.minergate.com",
		"*.nanopool.org",
		"*.supportxmr.com",
		"xmr.*",
	},
	Ports: []int{
		3333, // stratum
		4444,
		6667, // irc
		9050, // tor socks
	},
}
