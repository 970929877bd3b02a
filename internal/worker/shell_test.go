package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptPattern(t *testing.T) {
	matching := []string{
		"edge-1>",
		"edge-1#",
		"edge-1(config)#",
		"edge-1(config-if)# ",
		"admin@spine-2:RE0%",
		"router$",
	}
	for _, line := range matching {
		assert.True(t, promptPattern.MatchString(line), "expected prompt match for %q", line)
	}

	nonMatching := []string{
		"",
		"GigabitEthernet0/1 is up, line protocol is up",
		"Building configuration...",
	}
	for _, line := range nonMatching {
		assert.False(t, promptPattern.MatchString(line), "expected no prompt match for %q", line)
	}
}

func TestCleanOutput(t *testing.T) {
	raw := "show ip interface brief\r\n" +
		"Interface    IP-Address      OK? Method Status\r\n" +
		"Gi0/1        10.0.0.1        YES NVRAM  up\r\n" +
		"edge-1#"

	out := cleanOutput(raw, "show ip interface brief")

	assert.Equal(t,
		"Interface    IP-Address      OK? Method Status\n"+
			"Gi0/1        10.0.0.1        YES NVRAM  up",
		out)
}

func TestCleanOutput_NoEchoNoPrompt(t *testing.T) {
	assert.Equal(t, "output only", cleanOutput("output only", "show version"))
}

func TestCleanOutput_BlankBody(t *testing.T) {
	assert.Equal(t, "", cleanOutput("configure terminal\r\nedge-1(config)#", "configure terminal"))
}

func TestConfigModeCommands(t *testing.T) {
	enter, exit := configModeCommands("cisco_ios")
	assert.Equal(t, "configure terminal", enter)
	assert.Equal(t, "end", exit)

	enter, exit = configModeCommands("juniper_junos")
	assert.Equal(t, "configure", enter)
	assert.Equal(t, "commit and-quit", exit)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "edge-1#", lastLine("banner\nmotd\nedge-1#"))
	assert.Equal(t, "single", lastLine("single"))
	assert.Equal(t, "", lastLine("trailing\n"))
}
