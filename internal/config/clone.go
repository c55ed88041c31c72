package config

// Clone 返回 Policy 的深拷贝。AutoFix 的每个候选都基于拷贝变异，
// 原 Policy 在整个搜索期间保持可复现。
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	out := *p
	if len(p.Session.Exclusions) > 0 {
		out.Session.Exclusions = make([]ClockRange, len(p.Session.Exclusions))
		copy(out.Session.Exclusions, p.Session.Exclusions)
	}
	if len(p.Verdict) > 0 {
		out.Verdict = make(map[string]VerdictConfig, len(p.Verdict))
		for k, v := range p.Verdict {
			out.Verdict[k] = v
		}
	}
	return &out
}
