package reddit

// defaultRules covers popular subreddits when reddit cannot be reached.
var defaultRules = map[string]Rules{
	"askreddit": {
		Description: "AskReddit is for open-ended, thought-provoking questions",
		Rules: []Rule{
			{"Questions Only", "Posts must be questions that are open-ended and thought-provoking"},
			{"No Yes/No Questions", "Questions must not be answerable with yes or no"},
			{"No Personal Advice", "No requests for personal advice, relationship advice, or medical advice"},
			{"Title Only", "No text in the body, only the title"},
			{"Question Mark Required", "Titles must end with a question mark"},
		},
	},
	"programming": {
		Description: "A subreddit for programming discussions and help",
		Rules: []Rule{
			{"Programming Related", "All posts must be related to programming"},
			{"No Homework Help", "No requests for homework help or assignments"},
			{"Include Code", "Include relevant code snippets when asking for help"},
			{"Descriptive Titles", "Use descriptive titles that explain your problem"},
			{"No Memes", "No memes, jokes, or low-effort content"},
		},
	},
	"learnprogramming": {
		Description: "A subreddit for learning programming",
		Rules: []Rule{
			{"Learning Focus", "Posts should be about learning programming"},
			{"Include Details", "Provide context about your experience level and what you've tried"},
			{"Code Formatting", "Format your code properly using code blocks"},
			{"Be Specific", "Ask specific questions rather than vague ones"},
			{"No Homework", "No requests for homework solutions"},
		},
	},
	"funny": {
		Description: "A place for funny content",
		Rules: []Rule{
			{"Actually Funny", "Content must be genuinely funny"},
			{"No Politics", "No political content or discussions"},
			{"No Reposts", "No reposts from the last 30 days"},
			{"Use Flair", "Use appropriate post flair"},
			{"No Personal Info", "No personal information or doxxing"},
		},
	},
	"explainlikeimfive": {
		Description: "Explain Like I'm Five - simple explanations of complex topics",
		Rules: []Rule{
			{"ELI5 Format", `Titles must start with "ELI5:"`},
			{"Simple Explanations", "Explain complex topics in simple terms"},
			{"No Personal Stories", "No personal anecdotes or stories"},
			{"No Speculation", "No speculation or opinions, only facts"},
			{"Be Clear", "Ask clear, specific questions"},
		},
	},
	"todayilearned": {
		Description: "Today I Learned - interesting facts and discoveries",
		Rules: []Rule{
			{"TIL Format", `Titles must start with "TIL" or "Today I Learned"`},
			{"Factual Content", "Posts must be factual and verifiable"},
			{"No Recent Events", "No events from the last 2 years"},
			{"No Personal Stories", "No personal anecdotes or experiences"},
			{"Cite Sources", "Include reliable sources in comments"},
		},
	},
}

var genericRules = Rules{
	Description: "General Reddit community guidelines",
	Rules: []Rule{
		{"Be Respectful", "Be respectful and civil to other users"},
		{"Stay On Topic", "Keep posts relevant to the subreddit's purpose"},
		{"No Spam", "No spam, self-promotion, or advertising"},
		{"Follow Reddit Rules", "Follow Reddit's content policy and site-wide rules"},
		{"Use Descriptive Titles", "Use clear, descriptive titles for your posts"},
	},
}
