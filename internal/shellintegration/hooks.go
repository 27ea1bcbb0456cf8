package shellintegration

// Hook script installed into each PTY's shell. The single line detects zsh
// vs bash by environment variable so one injection works for both; the
// leading space keeps it out of shell history (HISTCONTROL=ignorespace /
// HIST_IGNORE_SPACE).
//
// zsh:  __dp_precmd/__dp_preexec appended to precmd_functions and
//       preexec_functions.
// bash: __dp_precmd prepended to PROMPT_COMMAND, __dp_preexec installed as a
//       DEBUG trap guarded by __dp_prompt_shown so it only fires between a
//       completed prompt and the next command.
const hookScript = ` if [ -n "$ZSH_VERSION" ]; then ` +
	`__dp_precmd() { printf '\033]7770;precmd;%d\a' $?; }; ` +
	`__dp_preexec() { printf '\033]7770;preexec\a'; }; ` +
	`precmd_functions+=(__dp_precmd); preexec_functions+=(__dp_preexec); ` +
	`elif [ -n "$BASH_VERSION" ]; then ` +
	`__dp_prompt_shown=0; ` +
	`__dp_precmd() { printf '\033]7770;precmd;%d\a' $?; __dp_prompt_shown=1; }; ` +
	`__dp_preexec() { if [ "$__dp_prompt_shown" = "1" ]; then __dp_prompt_shown=0; printf '\033]7770;preexec\a'; fi; }; ` +
	`PROMPT_COMMAND="__dp_precmd${PROMPT_COMMAND:+;$PROMPT_COMMAND}"; ` +
	`trap '__dp_preexec' DEBUG; fi` + "\n"

// reinjectionNotice is printed before re-installing hooks in a sub-shell so
// the user understands the extra output on their remote prompt.
const reinjectionNotice = "\r\n\x1b[33m[dispatcher] shell integration not detected; re-installing hooks\x1b[0m\r\n"

// HookScript returns the raw hook one-liner.
func HookScript() string {
	return hookScript
}
