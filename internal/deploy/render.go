package deploy

import (
	"sort"
	"strings"
)

// RunCommand renders the docker run invocation for a service. Output is
// deterministic (sorted flags) so it can be diffed between runs and
// checked into provisioning notes.
func RunCommand(s Service) string {
	parts := []string{"docker", "run", "-d", "--name", s.ContainerName()}

	if s.Restart != "" {
		parts = append(parts, "--restart", s.Restart)
	}
	for _, key := range sortedKeys(s.Env) {
		parts = append(parts, "-e", shellQuote(key+"="+s.Env[key]))
	}
	for _, host := range sortedKeys(s.Ports) {
		parts = append(parts, "-p", host+":"+s.Ports[host])
	}
	for _, host := range sortedKeys(s.Volumes) {
		parts = append(parts, "-v", shellQuote(host+":"+s.Volumes[host]))
	}
	if s.Entrypoint != "" {
		parts = append(parts, "--entrypoint", s.Entrypoint)
	}

	parts = append(parts, s.Image)
	for _, arg := range s.Command {
		parts = append(parts, shellQuote(arg))
	}

	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellQuote single-quotes a value when it contains anything the shell
// would interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\"'$&|;<>()*?#~`\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
