package feed

import (
	"encoding/xml"
	"fmt"
)

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
}

func renderRSS(baseURL, listID string, events []StoredEvent) ([]byte, error) {
	channel := rssChannel{
		Title:       "Todo list activity",
		Link:        fmt.Sprintf("%s/feeds/%s/rss.xml", baseURL, listID),
		Description: "Recent activity on this shared todo list.",
	}
	if len(events) > 0 {
		channel.Title = fmt.Sprintf("Activity for %q", events[0].ListName)
	}
	for _, event := range events {
		channel.Items = append(channel.Items, rssItem{
			Title:   eventHeadline(event),
			Link:    channel.Link,
			GUID:    event.EventID,
			PubDate: event.OccurredAt.Format("Mon, 02 Jan 2006 15:04:05 -0700"),
		})
	}

	body, err := xml.MarshalIndent(rssDocument{Version: "2.0", Channel: channel}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
