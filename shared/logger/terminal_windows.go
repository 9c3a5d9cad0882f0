package logger

func stderrIsTerminal() bool {
	return false
}
