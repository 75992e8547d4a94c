// Package scoring builds the LLM rating prompt and turns the LLM's JSON
// reply into threshold-filtered, article-correlated results.
package scoring

import (
	"fmt"
	"strings"

	"socrates/feeds"
)

const (
	titleWords   = 20
	excerptWords = 50

	// OtherCategory is always offered to the LLM as the fallback category.
	OtherCategory = "Other"
)

// BuildPrompt renders the rating prompt for links. Posts are numbered from
// 1 in slice order; that number is the post_id the LLM echoes back.
func BuildPrompt(links []feeds.Link, focus, emphasis string, categories []string) string {
	var b strings.Builder

	focus = strings.TrimSpace(focus)
	if focus == "" {
		focus = "[Main Subject Area not set]"
	}

	b.WriteString("You will be provided with a list of blog posts (<blog_posts>...</blog_posts>) containing titles and excerpts.\n")
	fmt.Fprintf(&b, "Your task is to analyze each post and rate its relevance to the main subject area: %s.\n\n", focus)

	if emphasis = strings.TrimSpace(emphasis); emphasis != "" {
		fmt.Fprintf(&b, "When rating, pay specific attention to: %s.\n\n", emphasis)
	} else {
		b.WriteString("\n")
	}

	b.WriteString("Assign a score from 1 (least relevant) to 10 (most relevant) and a confidence percentage (0-100) for your rating.\n")
	b.WriteString("Finally, categorize each post using ONLY ONE of the following categories:\n")

	listed := 0
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			fmt.Fprintf(&b, "- %s\n", c)
			listed++
		}
	}
	if listed == 0 {
		b.WriteString("[No categories set]\n")
	}
	b.WriteString("- Other (Use this if no other category fits)\n\n")

	b.WriteString("Your response MUST be a single valid JSON object.\n")
	b.WriteString("This JSON object must contain a single key named \"results\".\n")
	b.WriteString("The value of the \"results\" key MUST be a JSON array.\n")
	b.WriteString("Each element in the \"results\" array MUST be a JSON object corresponding to one of the analyzed blog posts.\n")
	b.WriteString("Each post object within the \"results\" array MUST have the following structure and keys: \n")
	b.WriteString("`{\"post_id\": number, \"score\": number, \"confidence\": number, \"category\": \"string\"}`\n\n")

	b.WriteString("Example Input Posts:\n")
	b.WriteString("post: 1\n")
	b.WriteString("title: AI Wins Art Prize\n")
	b.WriteString("excerpt: An AI generated image won first place... implications for copyright...\n")
	b.WriteString("post: 2\n")
	b.WriteString("title: New Mario Game Announced\n")
	b.WriteString("excerpt: Nintendo revealed the next installment... no legal issues mentioned...\n\n")

	b.WriteString("Example JSON Object Output (containing a \"results\" array with objects for the two example posts):\n")
	b.WriteString("`{\n")
	b.WriteString("  \"results\": [\n")
	b.WriteString("    {\"post_id\": 1, \"score\": 8, \"confidence\": 95, \"category\": \"Copyright\"},\n")
	b.WriteString("    {\"post_id\": 2, \"score\": 2, \"confidence\": 60, \"category\": \"Other\"}\n")
	b.WriteString("  ]\n")
	b.WriteString("}`\n\n")

	b.WriteString("Ensure the final output is ONLY the single JSON object (starting with `{` and ending with `}`), with no introductory text, explanations, or markdown formatting around the JSON itself.\n")

	b.WriteString("\nHere are the blog posts:\n\n")
	b.WriteString("<blog_posts>\n")
	for i, link := range links {
		fmt.Fprintf(&b, "post: %d\n", i+1)
		fmt.Fprintf(&b, "title: %s\n", TrimWords(link.Title, titleWords))
		fmt.Fprintf(&b, "excerpt: %s\n", TrimWords(link.Excerpt, excerptWords))
		b.WriteString("\n")
	}
	b.WriteString("</blog_posts>")

	return b.String()
}

// TrimWords keeps the first n whitespace-separated words of s, joined by
// single spaces, and appends an ellipsis when words were dropped.
func TrimWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}
