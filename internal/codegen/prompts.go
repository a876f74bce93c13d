package codegen

import (
	"fmt"
)

// apiReminders is appended to every generation prompt. Models trained
// on the old engine API keep emitting PascalCase calls; the reminders
// cut the correction-loop load substantially.
const apiReminders = `Engine API requirements (Python, current API):
- Start with: from AlgorithmImports import *
- Use snake_case methods: set_cash, add_equity, set_holdings, liquidate, set_benchmark
- def initialize(self), def on_data(self, data) - lowercase
- Resolution enum values are uppercase: Resolution.DAILY, Resolution.MINUTE
- Indicator properties: .is_ready, .current.value
- Do NOT call set_start_date or set_end_date; the harness injects dates
- Options: use add_option and option_chain; option filters keep PascalCase
  builder methods (IncludeWeeklys, Strikes, Expiration); set the underlying to
  DataNormalizationMode.RAW
- Always call self.set_benchmark("SPY") after set_cash`

func buildGeneratePrompt(candidateYAML, className string) string {
	return fmt.Sprintf(`You are writing a backtest algorithm for the QuantConnect LEAN engine.

Write a complete Python algorithm class named %s implementing this
strategy candidate:

%s

%s

Reply with a single fenced python code block containing only the algorithm.`,
		className, candidateYAML, apiReminders)
}

func buildCorrectionPrompt(source, errorText, className string) string {
	return fmt.Sprintf(`A QuantConnect LEAN backtest of the algorithm below failed. Fix the
algorithm so the backtest runs. Keep the class name %s and the trading
logic; change only what the error requires.

Error output:
%s

Current algorithm:
`+"```python\n%s\n```"+`

%s

Reply with a single fenced python code block containing the corrected algorithm.`,
		className, errorText, source, apiReminders)
}
