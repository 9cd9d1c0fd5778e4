package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
)

const defaultGitHubAPI = "https://api.github.com"

// ResearchBrief 调研简报（按来源分节，供提示词组装）
type ResearchBrief struct {
	Twitter string
	GitHub  string
	Website string
	Wallet  string
}

// Researcher 申请背景调研器
//
// 各项探测并发执行，任何一项失败都降级为描述性文字，
// 调研永远不会让评审流程失败。
type Researcher struct {
	githubAPI     string
	blockscoutAPI string
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewResearcher 创建调研器
func NewResearcher(blockscoutAPI string, logger *logrus.Logger) *Researcher {
	return &Researcher{
		githubAPI:     defaultGitHubAPI,
		blockscoutAPI: strings.TrimRight(blockscoutAPI, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Research 并发执行全部调研探测
func (r *Researcher) Research(ctx context.Context, app *models.Application) *ResearchBrief {
	brief := &ResearchBrief{}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		brief.Twitter = r.twitterBrief(app.Data.TwitterHandle())
	}()
	go func() {
		defer wg.Done()
		brief.GitHub = r.githubBrief(ctx, app.Data.GitHub)
	}()
	go func() {
		defer wg.Done()
		brief.Website = r.websiteBrief(ctx, app.Data.Website)
	}()
	go func() {
		defer wg.Done()
		brief.Wallet = r.walletBrief(ctx, app.Data.Wallet)
	}()

	wg.Wait()
	return brief
}

// twitterBrief Twitter简报
//
// 没有接入Twitter查询API，只能给出句柄本身，由模型结合
// 其余材料判断可信度。
func (r *Researcher) twitterBrief(handle string) string {
	if handle == "" {
		return "未提供Twitter账号。"
	}
	return fmt.Sprintf("申请人自报Twitter账号为%s，未做自动核实，请结合其余材料判断该账号的真实性与活跃度。", handle)
}

// githubBrief GitHub简报
func (r *Researcher) githubBrief(ctx context.Context, github string) string {
	if github == "" {
		return "未提供GitHub。"
	}

	path := strings.TrimPrefix(strings.TrimPrefix(github, "https://"), "http://")
	path = strings.TrimPrefix(path, "github.com/")
	path = strings.Trim(path, "/")
	if path == "" {
		return fmt.Sprintf("GitHub链接无法解析: %s", github)
	}

	var url string
	if strings.Contains(path, "/") {
		url = fmt.Sprintf("%s/repos/%s", r.githubAPI, path)
	} else {
		url = fmt.Sprintf("%s/users/%s", r.githubAPI, path)
	}

	var payload struct {
		Description     string `json:"description"`
		StargazersCount int    `json:"stargazers_count"`
		PushedAt        string `json:"pushed_at"`
		PublicRepos     int    `json:"public_repos"`
		Followers       int    `json:"followers"`
		CreatedAt       string `json:"created_at"`
	}
	if err := r.getJSON(ctx, url, &payload); err != nil {
		r.logger.Debugf("GitHub调研失败 %s: %v", path, err)
		return fmt.Sprintf("GitHub %s 查询失败，无法核实。", path)
	}

	if strings.Contains(path, "/") {
		return fmt.Sprintf("GitHub仓库 %s: %s，star数%d，最近推送%s。",
			path, payload.Description, payload.StargazersCount, payload.PushedAt)
	}
	return fmt.Sprintf("GitHub用户 %s: 公开仓库%d个，关注者%d，注册于%s。",
		path, payload.PublicRepos, payload.Followers, payload.CreatedAt)
}

// websiteBrief 网站可达性简报
func (r *Researcher) websiteBrief(ctx context.Context, website string) string {
	if website == "" {
		return "未提供产品网站。"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, website, nil)
	if err != nil {
		return fmt.Sprintf("网站 %s 地址无效。", website)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("网站 %s 无法访问。", website)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Sprintf("网站 %s 返回状态码%d。", website, resp.StatusCode)
	}
	return fmt.Sprintf("网站 %s 可访问（状态码%d）。", website, resp.StatusCode)
}

// walletBrief 收款钱包链上历史简报
func (r *Researcher) walletBrief(ctx context.Context, wallet string) string {
	if wallet == "" {
		return "未提供收款钱包。"
	}
	if r.blockscoutAPI == "" {
		return fmt.Sprintf("钱包 %s 未做链上核查。", wallet)
	}

	var payload struct {
		CoinBalance string `json:"coin_balance"`
		IsContract  bool   `json:"is_contract"`
	}
	url := fmt.Sprintf("%s/addresses/%s", r.blockscoutAPI, wallet)
	if err := r.getJSON(ctx, url, &payload); err != nil {
		r.logger.Debugf("钱包调研失败 %s: %v", wallet, err)
		return fmt.Sprintf("钱包 %s 链上查询失败（可能是全新地址）。", wallet)
	}

	kind := "外部账户"
	if payload.IsContract {
		kind = "合约地址"
	}
	return fmt.Sprintf("钱包 %s 为%s，当前余额%s wei。", wallet, kind, payload.CoinBalance)
}

// getJSON 执行GET请求并解析JSON响应
func (r *Researcher) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("状态码%d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
