package parser

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "about", "above", "after", "again", "against", "all", "almost", "alone",
		"along", "already", "also", "although", "always", "am", "among", "an", "and",
		"another", "any", "anyhow", "anyone", "anything", "anyway", "anywhere", "are",
		"around", "as", "at", "b", "be", "became", "because", "become", "becomes",
		"been", "before", "being", "below", "beside", "besides", "between", "beyond",
		"both", "but", "by", "c", "can", "cannot", "could", "d", "did", "do", "does",
		"doing", "done", "down", "due", "during", "e", "each", "either", "else",
		"elsewhere", "enough", "even", "ever", "every", "everyone", "everything",
		"everywhere", "except", "f", "few", "for", "former", "from", "further", "g",
		"get", "give", "go", "h", "had", "has", "have", "having", "he", "hence", "her",
		"here", "hers", "herself", "him", "himself", "his", "how", "however", "i", "if",
		"in", "indeed", "into", "is", "it", "its", "itself", "j", "just", "k", "keep",
		"l", "last", "latter", "least", "less", "m", "made", "make", "many", "may", "me",
		"meanwhile", "might", "more", "moreover", "most", "mostly", "much", "must", "my",
		"myself", "n", "namely", "neither", "never", "nevertheless", "next", "no",
		"nobody", "none", "nor", "not", "nothing", "now", "nowhere", "o", "of", "off",
		"often", "on", "once", "only", "onto", "or", "other", "others", "otherwise",
		"our", "ours", "ourselves", "out", "over", "own", "p", "per", "perhaps",
		"please", "put", "q", "quite", "r", "rather", "re", "really", "s", "same", "say",
		"see", "seem", "seemed", "seems", "several", "she", "should", "show", "since",
		"so", "some", "somehow", "someone", "something", "sometime", "sometimes",
		"somewhere", "still", "such", "t", "take", "than", "that", "the", "their",
		"theirs", "them", "themselves", "then", "thence", "there", "thereafter",
		"thereby", "therefore", "these", "they", "this", "those", "though", "through",
		"throughout", "thus", "to", "together", "too", "toward", "towards", "u", "under",
		"until", "up", "upon", "us", "used", "using", "v", "various", "very", "via",
		"w", "was", "we", "well", "were", "what", "whatever", "when", "whence",
		"whenever", "where", "whereas", "whether", "which", "while", "who", "whoever",
		"whole", "whom", "whose", "why", "will", "with", "within", "without", "would",
		"x", "y", "yet", "you", "your", "yours", "yourself", "yourselves", "z",
	} {
		stopwords[w] = struct{}{}
	}
}

func isStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}
