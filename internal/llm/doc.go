// Package llm defines the text-generation contract shared by the intent
// classifier and the reply renderer. Provider adapters live in sub-packages
// and are selected at startup by the provider package.
package llm
