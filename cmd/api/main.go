package main

import "os"

// @title Resume Matcher API
// @version 1.0
// @description Ranks PDF resumes against job descriptions by embedding similarity, with optional LLM explanations.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
