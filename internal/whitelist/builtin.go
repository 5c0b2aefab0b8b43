package whitelist

// DefaultName is the built-in list applied when no custom whitelist is loaded.
const DefaultName = "github"

// builtins holds the lists a custom document may extend by name.
var builtins = map[string]List{
	"github": {
		Name: "github",
		Endpoints: []Endpoint{
			{Domain: "github.com", Description: "GitHub"},
			{Domain: "*.github.com", Description: "GitHub"},
			{Domain: "glb-*.github.com", Description: "GitHub load balancers"},
			{Domain: "*.githubusercontent.com", Description: "GitHub content"},
			{Domain: "*.actions.githubusercontent.com", Description: "Actions service"},
			{Domain: "*.githubapp.com", Description: "GitHub apps"},
			{Domain: "productionresultssa*.blob.core.windows.net", Description: "Actions results storage"},
			{IP: "168.63.129.16", Description: "Azure wireserver"},
			{IP: "169.254.169.254", Description: "Instance metadata"},
			{IP: "127.0.0.0/8", Description: "Loopback"},
		},
	},
	"gitlab": {
		Name: "gitlab",
		Endpoints: []Endpoint{
			{Domain: "gitlab.com", Description: "GitLab"},
			{Domain: "*.gitlab.com", Description: "GitLab"},
			{Domain: "*.gitlab-static.net", Description: "GitLab assets"},
			{IP: "169.254.169.254", Description: "Instance metadata"},
			{IP: "127.0.0.0/8", Description: "Loopback"},
		},
	},
}

// Builtin returns the named built-in list.
func Builtin(name string) (List, bool) {
	l, ok := builtins[name]
	return l, ok
}
