// Package searchscout enriches web search results for research and AI pipelines.
//
// A query goes to a SearXNG instance; every hit is fetched, cleaned into plain text,
// annotated with heuristic metadata (source, content type, credibility, language,
// keywords, reading time, publication date) and given APA, MLA and Chicago citations.
// Batch mode can additionally summarize, embed and deduplicate results through an
// OpenAI-compatible backend.
//
// # Batch
//
//	client, _ := searchscout.New(
//	    searchscout.WithSearXNG("http://localhost:8080"),
//	    searchscout.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer client.Close()
//
//	resp, _ := client.Search(ctx, "rust ownership", &searchscout.SearchOptions{
//	    Limit:      5,
//	    Embeddings: true,
//	    Dedup:      true,
//	})
//	for _, r := range resp.Results {
//	    fmt.Println(r.Citation.APA)
//	}
//
// # Stream
//
//	err := client.Stream(ctx, "rust ownership", nil, func(e searchscout.Event) error {
//	    if e.Result != nil {
//	        fmt.Println(e.Result.Title)
//	    }
//	    return nil
//	})
package searchscout
